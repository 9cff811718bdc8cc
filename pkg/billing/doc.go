// Package billing connects a payment provider to stored user entitlements.
//
// The package is glue between three collaborators: the payment provider
// (Stripe through PaymentProvider), a profile store holding per-user billing
// state, and the host application's session layer identifying the acting
// user. It exposes the server-side billing actions (Service), the webhook
// receiver that reconciles provider events into stored entitlements
// (Reconciler, WebhookHandler), and the static plan catalog with the
// feature-mapping rules (Catalog).
//
// Entitlement model: a profile's feature set is the union of features from
// every one-time purchase ever made, plus the features of the single
// currently-active subscription's plan. On every subscription change the
// subscription-derived part of the set is fully recomputed while one-time
// grants are preserved, so replaying an event never corrupts state.
package billing
