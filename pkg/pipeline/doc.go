// Package pipeline turns batches of row mutations into broker messages.
//
// A Dispatcher decomposes every mutation into cells, drops the cells matched
// by a drop rule, resolves the topics of the remaining cells through the route
// rules and publishes one encoded event per (cell, topic) pair through a
// Producer. Sends are asynchronous; Submit returns only after every send of
// the batch has been acknowledged or has failed, and reports the batch as a
// whole.
//
// Producers for Kafka (sarama and kafka-go), NATS JetStream, MQTT and a debug
// logger live under peer/ and register themselves by name, so a blank import
// is enough to make one available to Open.
package pipeline
