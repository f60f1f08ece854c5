// Package kafka publishes dispatched messages to Kafka with sarama.
//
// The producer is asynchronous: Send enqueues the message on the
// AsyncProducer and returns its future, which resolves once the brokers
// acknowledged (RequiredAcks=WaitForAll) or rejected the record. The record
// key is the row key, so the default hash partitioner keeps every change of a
// row on one partition.
//
// Kafka topic naming conventions:
// - Case-sensitive, no spaces
// - Valid chars: alphanumeric, `.`, `-`, `_`
// - Recommended max length: 249 bytes
//
// Configuration:
// - Replication Factor: Minimum 2 recommended for production
// - Number of Partitions: Based on throughput requirements
// - Retention: Configurable per topic
//
// Example peer config:
//
//	peers:
//	  - name: events
//	    connector: kafka
//	    config:
//	      brokers: ["kafka-0:9092", "kafka-1:9092"]
//	      sasl: {enable: true, algorithm: sha512, username: cellbridge, password: secret}
//	      topics: ["audit", "picked"]
//
// Note: Ensure proper ACLs are configured for topic access
package kafka
