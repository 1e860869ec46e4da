/*
Package pizzasdk provides a client SDK for the pizzeria storefront API.

# Overview

The pizzasdk package talks to the storefront's REST API: the public catalog, the
customer cart and orders, and the administrative surface. It is organized around
two types:

  - Client: unauthenticated operations (login, register, the public catalog) and
    construction of Gateways
  - Gateway: authenticated operations, with the bearer credential attached and
    renewed transparently

Create a Client for public endpoints and to sign in:

	client := pizzasdk.NewClient("http://localhost:8000")

	// Browse the menu, no credentials needed
	pizzas, err := client.ListPizzas(ctx)

	// Sign in; credentials are persisted to the store
	gw, err := client.Login(ctx, store, "ada@example.com", "hunter2")

Resume a previous sign-in from persisted credentials:

	gw := client.NewGateway(store)

# Credential Storage

A Gateway reads and writes its credentials through a CredentialStore. The store
holds exactly three values: the access credential, the refresh credential and the
role reported at login. MemoryStore keeps them in process; the sqlite and redis
drivers under internal/credstore persist them across runs.

Nothing about expiry is tracked locally. The server is the only authority on
whether an access credential is still good, and it answers with HTTP 401 when
it is not.

# Automatic Renewal

Every Gateway operation goes through Gateway.Call, which:

 1. Fails with ErrUnauthenticated, without touching the network, when no access
    credential is stored
 2. Sends the request with "Authorization: Bearer <access>"
 3. On HTTP 401, renews the credential pair via POST /auth/refresh
 4. Re-sends the original request exactly once with the new access credential

Renewal is coalesced. However many requests hit a 401 at the same moment, only
one renewal call is made; every caller waits on it and receives the same pair.
A 401 for a credential that an already completed renewal has replaced is simply
retried with the current credential.

If the server rejects the refresh credential, both stored credentials are
cleared, the session-expired hook runs, and callers receive ErrRenewalFailed.
A network failure during renewal also yields ErrRenewalFailed, but leaves the
stored credentials in place so a later attempt can succeed.

# Roles

Administrative operations require the "admin" role. The Gateway checks the
stored role before sending such requests and returns ErrForbidden without a
round trip. Set Client.CheckRoles to false to leave the decision to the server.

# Error Handling

Non-2xx responses are returned as *APIError carrying the status code and the
server's detail message:

	order, err := gw.GetOrder(ctx, 42)
	var apiErr *pizzasdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// no such order
	}

Authentication failures are sentinels and should be matched with errors.Is:

	if errors.Is(err, pizzasdk.ErrRenewalFailed) {
		// send the user back to login
	}

# Thread Safety

Client and Gateway are safe for concurrent use by multiple goroutines.
*/
package pizzasdk
