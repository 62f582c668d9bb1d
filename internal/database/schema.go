package database

const schema = `
CREATE TABLE IF NOT EXISTS top_up_attempts (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    attempt_id CHAR(36) NOT NULL UNIQUE,
    session_key CHAR(64) NOT NULL,
    plan_slug VARCHAR(64) NOT NULL,
    gateway VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL,
    detail TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_top_up_attempts_session (session_key, created_at)
);
`
