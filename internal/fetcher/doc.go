// Package fetcher turns remote JSONP endpoints into decoded JSON payloads,
// consulting a response cache before touching the network.
package fetcher
