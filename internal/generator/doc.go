// Package generator produces raw proposition batches for the bootstrap
// directory.
//
// A Generator pulls one category/text pair per slot from a ContentSource and
// stamps the whole batch with a single creation time. LLMSource asks the
// remote service for each proposition.
// Near-identical propositions inside one batch are re-requested a bounded
// number of times before being kept.
package generator
