/*
Package sessionsdk manages the lifecycle of a dealerdesk session: it logs in
against the issuer, persists the resulting token pair, renews it ahead of
expiry, and recovers from authorization rejections on business calls.

# Overview

Everything is built around a [Client]. A Client owns three collaborators:

  - a [tokenstore.Store] holding at most one Session (access + refresh token)
  - a [RefreshCoordinator] that turns "this token is expiring or was rejected"
    into exactly one call to POST /auth/refresh, shared by every waiter
  - a [Transport] that authorizes every outgoing request from the store

Construct one per logical session:

	client, err := sessionsdk.NewClient(sessionsdk.Config{
		BaseURL: "https://api.example.com",
		Store:   tokenstore.NewFile(path),
	})

	sess, err := client.Login(ctx, sessionsdk.Credentials{Username: "sam", Password: "..."})

Business calls go through the authorized HTTP client:

	req, _ := client.NewRequest(ctx, http.MethodGet, "/api/orders", nil)
	resp, err := client.Do(req)

# Refresh

Before a request leaves, the Transport decodes the stored access token. When
exp is within Config.RefreshThreshold the request proceeds with the current
token while a refresh starts in the background; an already expired token
makes the request wait for the refresh instead.

A 401 on a request that carried a token triggers (or joins) a refresh and the
request is sent once more with the new token. A retried request is never
retried again. When the refresh fails the session is cleared,
Config.OnSessionInvalid fires, and the caller receives the original 401.

# Claims

Role and permission queries decode the access token without verifying its
signature. They are advisory; the backend enforces authorization.

# Errors

Issuer rejections of login, registration and password operations are
returned as *AuthError. Transport failures on those calls are *NetworkError.
A failed refresh is a *RefreshError, which matches ErrSessionInvalid with
errors.Is.
*/
package sessionsdk
