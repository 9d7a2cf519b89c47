// Package upstream is the HTTP access layer between the filesystem handlers
// and the remote origin. It joins the origin base path with the requested
// remote path, resolves 301/302 redirects itself (only those that stay under
// the configured origin string), and classifies transport and status failures
// into fserr kinds. Requests run on leased workers: each worker owns a single
// keep-alive connection and serves one caller at a time, so no connection is
// ever shared by concurrent callers.
package upstream
