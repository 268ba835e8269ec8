package builtin

import (
	"github.com/Kronos-Integration/service-sub000/service"
)

// Factories returns the factories of the builtin service types
func Factories() []*service.Factory {
	return []*service.Factory{
		{
			Type:        SinkType,
			Description: "Counts and logs every payload arriving at its in endpoint",
			New:         NewSink,
		},
		{
			Type:        RelayType,
			Description: "Forwards payloads from its in endpoint through its out endpoint",
			New:         NewRelay,
		},
		{
			Type:        TickerType,
			Description: "Emits a tick through its out endpoint at a fixed interval",
			Attributes:  tickerAttributes,
			New:         NewTicker,
		},
	}
}

// InterceptorFactories returns the factories of the builtin interceptors
func InterceptorFactories() []*service.InterceptorFactory {
	return []*service.InterceptorFactory{
		{
			Type:        LoggingInterceptorType,
			Description: "Logs each payload and its outcome",
			New:         NewLoggingInterceptor,
		},
		{
			Type:        RateLimitInterceptorType,
			Description: "Drops payloads above rate per second with the given burst",
			New:         NewRateLimitInterceptor,
		},
	}
}

// Register adds every builtin factory to provider
func Register(provider *service.Provider) error {
	for _, f := range InterceptorFactories() {
		if err := provider.RegisterInterceptorFactory(f); err != nil {
			return err
		}
	}
	for _, f := range Factories() {
		if err := provider.RegisterServiceFactory(f); err != nil {
			return err
		}
	}
	return nil
}
