// Copyright 2026 The CMSKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth2

import "context"

type contextKey int

const activeTokenKey contextKey = iota

// WithActiveToken returns a context carrying the access token the
// current request authenticated with. Revocation is scoped to it.
func WithActiveToken(ctx context.Context, token *AccessToken) context.Context {
	return context.WithValue(ctx, activeTokenKey, token)
}

// ActiveTokenFromContext retrieves the request's access token, or nil.
func ActiveTokenFromContext(ctx context.Context) *AccessToken {
	if token, ok := ctx.Value(activeTokenKey).(*AccessToken); ok {
		return token
	}
	return nil
}
