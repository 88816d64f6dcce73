// Package engineerr defines the structured error taxonomy shared by every
// component of the search engine. Validation failures carry a kind the
// caller can act on directly; infrastructure faults are wrapped as
// IndexCorrupt only as a last resort, with the underlying cause chained.
package engineerr
