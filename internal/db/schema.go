package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS owner ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS target ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS processed ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total ON job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS artifact ON job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_owner_kind ON job FIELDS owner, kind;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;

    -- ==========================================================================
    -- INDEX_META TABLE (one vector index per owner+target)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS index_meta SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner ON index_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS target ON index_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS index_path ON index_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS cache_path ON index_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding_model ON index_meta TYPE string;
    DEFINE FIELD IF NOT EXISTS document_count ON index_meta TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS created_at ON index_meta TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON index_meta TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS index_meta_owner_target ON index_meta FIELDS owner, target UNIQUE;

    -- ==========================================================================
    -- INDUSTRY TABLE (classification target + category vocabulary)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS industry SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON industry TYPE string;
    DEFINE FIELD IF NOT EXISTS owner ON industry TYPE string;
    DEFINE FIELD IF NOT EXISTS categories ON industry TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON industry TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON industry TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS industry_owner_name ON industry FIELDS owner, name UNIQUE;
`
