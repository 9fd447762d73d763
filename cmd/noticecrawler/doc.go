// Command noticecrawler downloads listed-company announcement documents.
//
// Usage:
//
//	noticecrawler crawl [--config config.json] [--stock-code 601225]
//	noticecrawler cache list [--json]
//	noticecrawler cache sweep
//	noticecrawler version
//
// Configuration is read from the file given by --config (or ./config.json),
// then overridden by NOTICE_* environment variables, e.g.
// NOTICE_TARGET_STOCK_CODE or NOTICE_CACHE_BACKEND. A .env file in the working
// directory is loaded first when present.
package main
