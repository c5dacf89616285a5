package auth

import "context"

// SetClaimsForTest injects admin claims into the context for testing.
func SetClaimsForTest(ctx context.Context, adminID, name string) context.Context {
	return context.WithValue(ctx, claimsKey, &Claims{AdminID: adminID, Name: name})
}
