// Package paddle implements billing.Provider with the official Paddle Go SDK.
//
// SDK errors are returned as *billing.ProviderError carrying the Paddle error
// code and a status derived from it, so billing.ProviderStatus can tell a
// missing customer (404) from an authentication failure (401/403). A create
// call rejected because the email already belongs to a customer is reported
// as billing.ErrCustomerConflict.
package paddle
