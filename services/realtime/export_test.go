package realtime

// NewMQTTBrokerWithClient builds an MQTTBroker on top of an already connected client.
var NewMQTTBrokerWithClient = newMQTTBroker
