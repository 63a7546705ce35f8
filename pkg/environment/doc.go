// Package environment propagates the application environment (development,
// staging, production) through context.Context, HTTP requests and structured
// logs.
//
// Parse normalizes configuration values such as "prod" or "stage". The billing
// service uses IsProduction to decide whether unsigned webhooks may ever be
// accepted, so treat anything that is not explicitly production as
// non-production only in local setups.
//
//	env := environment.Parse(os.Getenv("ENV"))
//	h = environment.Middleware(env)(h)
//	if environment.IsProduction(r.Context()) { ... }
package environment
