// Package progress carries crawl milestones from the discovery loop to
// observers. A Hub groups the events of each run and hands them to sinks at
// page boundaries and when the run ends. Delivery happens on the caller's
// goroutine, matching the sequential crawl.
package progress
