package database

// schemaStatements are executed one by one: the MySQL driver rejects
// multi-statement batches unless the DSN opts into multiStatements.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(128) PRIMARY KEY,
    email VARCHAR(255) NOT NULL,
    display_name VARCHAR(255),
    credits INT NOT NULL DEFAULT 0,
    tier VARCHAR(32) NOT NULL DEFAULT 'free',
    billing_customer_id VARCHAR(128),
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`,
	`CREATE TABLE IF NOT EXISTS generations (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    owner_id VARCHAR(128) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    prompt TEXT NOT NULL,
    source_path VARCHAR(512),
    result_path VARCHAR(512) NOT NULL,
    result_url TEXT,
    credits INT NOT NULL DEFAULT 0,
    params TEXT,
    status VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    INDEX idx_generations_owner_created (owner_id, created_at)
)`,
	`CREATE TABLE IF NOT EXISTS payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    owner_id VARCHAR(128) NOT NULL,
    provider VARCHAR(64) NOT NULL,
    provider_charge_id VARCHAR(128),
    amount INT NOT NULL,
    currency VARCHAR(8) NOT NULL,
    credits INT NOT NULL DEFAULT 0,
    subscription VARCHAR(32),
    status VARCHAR(16) NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    INDEX idx_payments_owner_created (owner_id, created_at)
)`,
}
