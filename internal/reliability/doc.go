// Package reliability provides retry policies and a circuit breaker used by
// the publish path. These protect against transient transport failures; they
// never retry caller mistakes such as invalid subjects.
package reliability
