// Package mqtt publishes dispatched messages to an MQTT broker.
//
// topic: <topicPrefix>/<dispatch topic>
// payload: encoded event
//
// Messages are published with QoS 1 by default so that each publish token
// completes only after the broker acknowledged it.
//
// Example:
// mosquitto_sub -t 'cellbridge/#'
package mqtt
