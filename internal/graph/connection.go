package graph

// AudioConnection maps a contiguous channel range on a producer port to a
// contiguous channel range of the same width on a consumer port.
type AudioConnection struct {
	Producer       *AudioPort
	ProducerOffset int
	Consumer       *AudioPort
	ConsumerOffset int
	Width          int
}

// ParameterConnection maps one producer parameter port to one consumer
// parameter port; both must agree on ParamType and Protocol.
type ParameterConnection struct {
	Producer *ParameterPort
	Consumer *ParameterPort
}
