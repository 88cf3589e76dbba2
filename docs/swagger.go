// Package docs Finfeed API
//
// Finfeed ingests financial news from RSS feeds and the Alpaca news API,
// enriches articles with AI-generated summaries and sentiment, and serves
// the enriched store through a searchable JSON API.
//
//	Schemes: http, https
//	Host: localhost:8080
//	BasePath: /api/v1
//	Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package docs

import "github.com/swaggo/swag"

// @title Finfeed API
// @version 1.0
// @description Financial news ingestion, AI enrichment and search service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

func init() {
	swag.Register(swag.Name, &swag.Spec{
		InfoInstanceName: "swagger",
		SwaggerTemplate:  docTemplate,
	})
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Finfeed API",
        "description": "Financial news ingestion, AI enrichment and search service",
        "version": "1.0.0",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        }
    },
    "host": "localhost:8080",
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "paths": {
        "/health": {
            "get": {
                "description": "Reports service liveness and background loop states",
                "summary": "Health Check",
                "operationId": "healthCheck",
                "tags": ["Health"],
                "responses": {
                    "200": {
                        "description": "Service is healthy",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "status": {
                                    "type": "string",
                                    "example": "healthy"
                                },
                                "service": {
                                    "type": "string",
                                    "example": "finfeed"
                                },
                                "poller_active": {
                                    "type": "boolean"
                                },
                                "sync_running": {
                                    "type": "boolean"
                                }
                            }
                        }
                    }
                }
            }
        },
        "/search": {
            "get": {
                "description": "Searches the enriched article store with optional filters and pagination",
                "summary": "Search Articles",
                "operationId": "searchArticles",
                "tags": ["Search"],
                "parameters": [
                    {
                        "name": "$search",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Search terms (comma-separated, OR logic)"
                    },
                    {
                        "name": "$filter",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Filter expression (e.g. sentiment eq 'positive' and language eq 'en')"
                    },
                    {
                        "name": "$orderby",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Sort order (e.g. published_at desc)"
                    },
                    {
                        "name": "$top",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": "Maximum number of results"
                    },
                    {
                        "name": "$skip",
                        "in": "query",
                        "required": false,
                        "type": "integer",
                        "description": "Number of results to skip"
                    },
                    {
                        "name": "$select",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Fields to include (comma-separated)"
                    },
                    {
                        "name": "q",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Shorthand for a single search term"
                    },
                    {
                        "name": "symbol",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Ticker symbol (e.g. AAPL)"
                    },
                    {
                        "name": "source",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Source name (e.g. yahoo-finance, alpaca)"
                    },
                    {
                        "name": "sentiment",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "positive, negative or neutral"
                    },
                    {
                        "name": "language",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Two-letter language code"
                    },
                    {
                        "name": "from",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Published-after bound (RFC3339 or YYYY-MM-DD)"
                    },
                    {
                        "name": "to",
                        "in": "query",
                        "required": false,
                        "type": "string",
                        "description": "Published-before bound (RFC3339 or YYYY-MM-DD)"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Search results",
                        "schema": {
                            "$ref": "#/definitions/SearchResult"
                        }
                    },
                    "400": {
                        "description": "Bad request - invalid query parameters"
                    },
                    "500": {
                        "description": "Internal server error"
                    }
                }
            }
        },
        "/articles/{external_id}": {
            "get": {
                "description": "Looks up an article by external ID. Articles still waiting for enrichment are returned with pending set.",
                "summary": "Get Article",
                "operationId": "getArticle",
                "tags": ["Search"],
                "parameters": [
                    {
                        "name": "external_id",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Article external ID"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Article with pending flag",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "article": {
                                    "$ref": "#/definitions/SearchEntry"
                                },
                                "pending": {
                                    "type": "boolean",
                                    "description": "True when the article is still in the buffer store"
                                }
                            }
                        }
                    },
                    "404": {
                        "description": "Article not found"
                    },
                    "500": {
                        "description": "Internal server error"
                    }
                }
            }
        },
        "/symbols": {
            "get": {
                "description": "Lists distinct ticker symbols across the search store",
                "summary": "List Symbols",
                "operationId": "getSymbols",
                "tags": ["Search"],
                "responses": {
                    "200": {
                        "description": "Symbol list",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "symbols": {
                                    "type": "array",
                                    "items": {
                                        "type": "string"
                                    },
                                    "example": ["AAPL", "MSFT", "SPY"]
                                },
                                "count": {
                                    "type": "integer"
                                }
                            }
                        }
                    },
                    "500": {
                        "description": "Internal server error"
                    }
                }
            }
        },
        "/ingest": {
            "post": {
                "description": "Submits article candidates. Duplicates against either store are skipped and reported per item.",
                "summary": "Ingest Articles",
                "operationId": "ingestArticles",
                "tags": ["Ingest"],
                "parameters": [
                    {
                        "name": "candidates",
                        "in": "body",
                        "required": true,
                        "description": "Article candidates",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/Candidate"
                            }
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Per-item ingestion results",
                        "schema": {
                            "$ref": "#/definitions/IngestStats"
                        }
                    },
                    "400": {
                        "description": "Bad request - malformed or empty candidate list"
                    }
                }
            }
        },
        "/buffer/stats": {
            "get": {
                "description": "Reports article counts in the buffer store",
                "summary": "Buffer Stats",
                "operationId": "getBufferStats",
                "tags": ["Stats"],
                "responses": {
                    "200": {
                        "description": "Buffer store counts",
                        "schema": {
                            "$ref": "#/definitions/BufferStats"
                        }
                    },
                    "500": {
                        "description": "Internal server error"
                    }
                }
            }
        },
        "/stats": {
            "get": {
                "description": "Reports database, cache and enrichment statistics",
                "summary": "Service Stats",
                "operationId": "getStats",
                "tags": ["Stats"],
                "responses": {
                    "200": {
                        "description": "Service statistics",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "database": {
                                    "type": "object"
                                },
                                "cached_items": {
                                    "type": "integer"
                                },
                                "enrichment": {
                                    "type": "object"
                                }
                            }
                        }
                    },
                    "500": {
                        "description": "Internal server error"
                    }
                }
            }
        },
        "/sync/status": {
            "get": {
                "description": "Reports sync loop and cache warmer state",
                "summary": "Sync Status",
                "operationId": "getSyncStatus",
                "tags": ["Sync"],
                "responses": {
                    "200": {
                        "description": "Sync and warmer status",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "sync": {
                                    "type": "object"
                                },
                                "warmer": {
                                    "type": "object"
                                }
                            }
                        }
                    }
                }
            }
        },
        "/sync/run": {
            "post": {
                "description": "Runs a buffer-to-search sync pass immediately and returns its stats",
                "summary": "Run Sync Pass",
                "operationId": "runSync",
                "tags": ["Sync"],
                "responses": {
                    "200": {
                        "description": "Pass statistics",
                        "schema": {
                            "$ref": "#/definitions/SyncStats"
                        }
                    },
                    "500": {
                        "description": "Pass could not start"
                    }
                }
            }
        },
        "/poller/status": {
            "get": {
                "description": "Reports per-source polling state",
                "summary": "Poller Status",
                "operationId": "getPollerStatus",
                "tags": ["Poller"],
                "responses": {
                    "200": {
                        "description": "Poller status",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "polling": {
                                    "type": "boolean"
                                },
                                "interval": {
                                    "type": "string"
                                },
                                "sources": {
                                    "type": "array",
                                    "items": {
                                        "type": "object"
                                    }
                                }
                            }
                        }
                    }
                }
            }
        },
        "/poller/poll/{source}": {
            "post": {
                "description": "Polls a single source immediately",
                "summary": "Force Poll",
                "operationId": "forcePollSource",
                "tags": ["Poller"],
                "parameters": [
                    {
                        "name": "source",
                        "in": "path",
                        "required": true,
                        "type": "string",
                        "description": "Source name"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Poll completed",
                        "schema": {
                            "type": "object",
                            "properties": {
                                "message": {
                                    "type": "string"
                                },
                                "source": {
                                    "type": "string"
                                }
                            }
                        }
                    },
                    "404": {
                        "description": "Source not found"
                    }
                }
            }
        }
    },
    "definitions": {
        "SearchEntry": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "integer",
                    "description": "Row ID"
                },
                "external_id": {
                    "type": "string",
                    "description": "Stable article identifier"
                },
                "title": {
                    "type": "string",
                    "description": "Article title"
                },
                "url": {
                    "type": "string",
                    "description": "Article URL"
                },
                "published_at": {
                    "type": "string",
                    "format": "date-time",
                    "description": "Publication date"
                },
                "source": {
                    "type": "string",
                    "description": "Source name"
                },
                "ai_summary": {
                    "type": "string",
                    "description": "AI-generated summary"
                },
                "ai_insights": {
                    "type": "string",
                    "description": "AI-generated market insights"
                },
                "ai_sentiment_rating": {
                    "type": "integer",
                    "description": "AI sentiment rating from 1 (bearish) to 10 (bullish)"
                },
                "sentiment": {
                    "type": "string",
                    "description": "Lexical sentiment label"
                },
                "sentiment_score": {
                    "type": "number",
                    "description": "Lexical sentiment score"
                },
                "language": {
                    "type": "string",
                    "description": "Detected language code"
                },
                "symbols": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    },
                    "description": "Tagged ticker symbols"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "updated_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "SearchResult": {
            "type": "object",
            "properties": {
                "entries": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/SearchEntry"
                    },
                    "description": "Page of matching entries"
                },
                "count": {
                    "type": "integer",
                    "description": "Total matches before pagination"
                },
                "updated": {
                    "type": "string",
                    "format": "date-time",
                    "description": "Result generation time"
                }
            }
        },
        "Candidate": {
            "type": "object",
            "required": ["external_id", "title"],
            "properties": {
                "external_id": {
                    "type": "string",
                    "description": "Stable article identifier"
                },
                "title": {
                    "type": "string",
                    "description": "Article title"
                },
                "content": {
                    "type": "string",
                    "description": "Article body (HTML is converted to markdown)"
                },
                "url": {
                    "type": "string",
                    "description": "Article URL"
                },
                "published_at": {
                    "type": "string",
                    "format": "date-time",
                    "description": "Publication date"
                },
                "source": {
                    "type": "string",
                    "description": "Source name"
                },
                "symbols": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    },
                    "description": "Ticker symbols"
                }
            }
        },
        "IngestStats": {
            "type": "object",
            "properties": {
                "received": {
                    "type": "integer"
                },
                "saved": {
                    "type": "integer"
                },
                "duplicates": {
                    "type": "integer"
                },
                "failed": {
                    "type": "integer"
                },
                "results": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "external_id": {
                                "type": "string"
                            },
                            "status": {
                                "type": "string",
                                "enum": ["saved", "duplicate", "failed"]
                            },
                            "reason": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "BufferStats": {
            "type": "object",
            "properties": {
                "total": {
                    "type": "integer",
                    "description": "Articles in the buffer store"
                },
                "pending": {
                    "type": "integer",
                    "description": "Articles waiting for enrichment"
                },
                "enriched": {
                    "type": "integer",
                    "description": "Articles enriched and awaiting sync"
                }
            }
        },
        "SyncStats": {
            "type": "object",
            "properties": {
                "pass_id": {
                    "type": "string",
                    "description": "Short pass identifier"
                },
                "started_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "duration": {
                    "type": "integer",
                    "description": "Pass duration in nanoseconds"
                },
                "scanned": {
                    "type": "integer",
                    "description": "Enriched buffer rows considered"
                },
                "upserted": {
                    "type": "integer",
                    "description": "Rows written to the search store"
                },
                "cleared": {
                    "type": "integer",
                    "description": "Buffer rows removed after confirmation"
                },
                "failed": {
                    "type": "integer",
                    "description": "Rows left in the buffer for the next pass"
                },
                "abandoned": {
                    "type": "boolean",
                    "description": "True when the pass gave up after exhausted retries"
                },
                "error": {
                    "type": "string"
                }
            }
        }
    },
    "tags": [
        {
            "name": "Health",
            "description": "Health check endpoints"
        },
        {
            "name": "Search",
            "description": "Search store read endpoints"
        },
        {
            "name": "Ingest",
            "description": "Manual article submission"
        },
        {
            "name": "Sync",
            "description": "Buffer-to-search sync control"
        },
        {
            "name": "Poller",
            "description": "Background poller control"
        },
        {
            "name": "Stats",
            "description": "Service statistics"
        }
    ]
}`
