// Package director implements the Control4 Director client.
//
// The Director is the on-premise controller: it exposes a JSON REST API
// over HTTPS (self-signed certificate, bearer token auth) and pushes item
// state changes over a WebSocket event feed.
//
// Three pieces cooperate here:
//
//   - Account talks to the Control4 cloud account service, exchanging
//     account credentials for a director bearer token.
//   - TokenManager caches that token and refreshes it before expiry
//     (tokens are JWTs; expiry comes from the exp claim).
//   - Client and EventClient talk to the Director itself: Client for
//     item enumeration, variable reads and commands, EventClient for the
//     push feed.
//
// # Usage
//
//	account := director.NewAccount(cfg.Account)
//	tokens := director.NewTokenManager(account, store, time.Duration(cfg.Account.RefreshMargin)*time.Second)
//	client := director.NewClient(cfg.Director, tokens)
//
//	items, err := client.GetAllItemsByCategory(ctx, director.CategoryLights)
//	if err != nil {
//	    return err
//	}
//
//	events := director.NewEventClient(cfg.Director, tokens)
//	events.AddItemCallback(327, func(ev director.Event) {
//	    // apply ev.Data to entity state
//	})
//	if err := events.Start(ctx); err != nil {
//	    return err
//	}
package director
