// Package warehouse publishes datasets to BigQuery.
//
// Every publish replaces the destination table wholesale with a single load
// job (WRITE_TRUNCATE, CREATE_IF_NEEDED). All columns are loaded as nullable
// STRING; typing is left to downstream views.
package warehouse
