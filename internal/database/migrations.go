package database

const schema = `
CREATE TABLE IF NOT EXISTS emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uid TEXT UNIQUE NOT NULL,
    sender TEXT NOT NULL,
    subject TEXT,
    date DATETIME NOT NULL,
    body_preview TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_meta (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id INTEGER NOT NULL UNIQUE REFERENCES emails(id) ON DELETE CASCADE,

    sentiment TEXT,
    sentiment_score REAL,
    priority TEXT,
    priority_score REAL,
    category TEXT,
    category_confidence REAL,

    entities_json TEXT,
    keywords_json TEXT,

    analyzed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    model TEXT,
    processing_time_ms INTEGER
);

CREATE TABLE IF NOT EXISTS sync_status (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    account_email TEXT UNIQUE NOT NULL,

    last_sync_date DATETIME,
    last_sync_success BOOLEAN DEFAULT false,
    last_error_message TEXT,

    total_emails_synced INTEGER DEFAULT 0,
    last_batch_count INTEGER DEFAULT 0,

    sync_enabled BOOLEAN DEFAULT true,
    sync_days INTEGER DEFAULT 3,

    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_uid ON emails(uid);
CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(date);
CREATE INDEX IF NOT EXISTS idx_email_meta_email ON email_meta(email_id);
CREATE INDEX IF NOT EXISTS idx_email_meta_category ON email_meta(category);
CREATE INDEX IF NOT EXISTS idx_email_meta_priority ON email_meta(priority);
CREATE INDEX IF NOT EXISTS idx_email_meta_sentiment ON email_meta(sentiment);
CREATE INDEX IF NOT EXISTS idx_sync_status_account ON sync_status(account_email);
CREATE INDEX IF NOT EXISTS idx_sync_status_last_sync ON sync_status(last_sync_date);
`
