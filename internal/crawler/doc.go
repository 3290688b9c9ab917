// Package crawler implements the breadth-first link crawler: the Link value
// that fetches, extracts and persists one address, and the Crawler that drives
// Links concurrently off a shared frontier until the frontier is exhausted or
// the deadline passes.
package crawler
