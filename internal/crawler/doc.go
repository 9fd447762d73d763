// Package crawler defines the domain types and collaborator ports shared by the
// announcement discovery pipeline: request signatures, the remote envelope and
// its listing/detail payloads, document references, destination paths, title
// filtering, and the failure taxonomy used across subsystems.
package crawler
