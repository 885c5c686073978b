// Package crawler defines the records, interfaces and shared policies of the
// PNCP crawl pipeline: the fetcher, dedup store, tabular writer, orchestrator
// and unifier all speak in terms of the types declared here.
package crawler
