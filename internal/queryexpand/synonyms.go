package queryexpand

// Synonyms maps natural-language terms to code-vocabulary equivalents,
// bridging the vocabulary gap between how a developer phrases a search
// and how the indexed code actually names things (e.g. "auth" should
// also reach "authentication"/"authorize"/"login").
var Synonyms = map[string][]string{
	"function": {"func", "method", "fn", "def"},
	"method":   {"func", "fn", "function"},
	"func":     {"function", "method", "def"},
	"def":      {"func", "function", "method"},

	"class":     {"type", "struct", "interface"},
	"type":      {"class", "struct", "interface"},
	"struct":    {"class", "type", "structure"},
	"interface": {"protocol", "trait", "contract"},

	"error":     {"err", "exception", "fail", "failure"},
	"err":       {"error", "exception"},
	"exception": {"error", "err", "panic"},
	"handler":   {"handle", "callback"},

	"request":  {"req", "http"},
	"req":      {"request"},
	"response": {"resp", "reply"},
	"resp":     {"response", "reply"},
	"api":      {"endpoint", "handler", "route"},

	"context": {"ctx"},
	"ctx":     {"context"},
	"config":  {"cfg", "configuration", "settings", "options"},
	"cfg":     {"config", "configuration"},
	"options": {"opts", "config", "settings"},
	"opts":    {"options", "config"},

	"database":   {"db", "store", "storage"},
	"db":         {"database", "store"},
	"store":      {"storage", "database", "repository"},
	"storage":    {"store", "database"},
	"repository": {"repo", "store"},
	"repo":       {"repository", "store"},

	"auth":           {"authentication", "authorize", "login"},
	"authentication": {"auth", "authorize", "login"},
	"authorize":      {"auth", "authentication", "permission"},
	"login":          {"auth", "authentication", "signin"},

	"search":    {"find", "query", "lookup"},
	"find":      {"search", "lookup", "query"},
	"index":     {"indexer", "indexing", "catalog"},
	"embed":     {"embedding", "embedder", "vector"},
	"embedding": {"embed", "vector"},
	"vector":    {"embedding", "dense", "semantic"},
	"chunk":     {"segment", "block"},
	"token":     {"tokenize", "tokenizer", "word"},
	"parse":     {"parser", "parsing"},

	"create": {"new", "make", "init", "initialize"},
	"new":    {"create", "make", "init"},
	"init":   {"initialize", "setup"},
	"get":    {"fetch", "retrieve", "read", "load"},
	"set":    {"put", "assign", "write"},
	"read":   {"get", "load", "fetch"},
	"write":  {"save", "store", "put"},
	"load":   {"read", "get", "fetch"},
	"save":   {"write", "store", "persist"},
	"close":  {"shutdown", "stop", "cleanup"},

	"async":     {"goroutine", "concurrent", "parallel"},
	"goroutine": {"async", "concurrent"},
	"channel":   {"chan", "pipe"},
	"chan":      {"channel", "pipe"},
	"mutex":     {"lock", "sync"},
	"lock":      {"mutex", "sync"},

	"file":      {"path", "filesystem"},
	"path":      {"file", "filepath", "directory"},
	"directory": {"dir", "folder"},
	"dir":       {"directory", "folder"},

	"log":   {"logger", "logging"},
	"debug": {"trace", "verbose", "log"},
}
