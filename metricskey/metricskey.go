package metricskey

import "github.com/effective-security/metrics"

// Perf
var (
	// PerfJWSOperation is perf metric
	PerfJWSOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_jws",
		Help:         "perf_jws provides the sample metrics of JWS sign and verify operations",
		RequiredTags: []string{"action", "alg"},
	}

	// PerfJWEOperation is perf metric
	PerfJWEOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_jwe",
		Help:         "perf_jwe provides the sample metrics of JWE encrypt and decrypt operations",
		RequiredTags: []string{"action", "alg"},
	}

	// PerfNestedOperation is perf metric
	PerfNestedOperation = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_nested_token",
		Help:         "perf_nested_token provides the sample metrics of nested token create and load operations",
		RequiredTags: []string{"action"},
	}
)

// Metrics returns slice of metrics from this repo
var Metrics = []*metrics.Describe{
	&PerfJWSOperation,
	&PerfJWEOperation,
	&PerfNestedOperation,
}
