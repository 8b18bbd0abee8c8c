package rate_limit

// Limit defines request per minute (RPM) and token per minute (TPM) budgets.
// Zero leaves that dimension unlimited.
type Limit struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

// OpenAIImageLimit defines the default budget for the OpenAI images endpoint
var OpenAIImageLimit = Limit{
	RPM: 50 * .9, // 50 images per minute with 10% buffer to stay under the limit
}

// DemoLimit keeps the demo generator busy without flooding the event stream
var DemoLimit = Limit{
	RPM: 120,
}

// Unlimited reports whether neither dimension is bounded
func (l Limit) Unlimited() bool {
	return l.RPM <= 0 && l.TPM <= 0
}
