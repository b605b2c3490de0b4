// Package providers holds the external collaborator clients: the sanctions
// screening provider (shipped as a deterministic stub), the CoinGecko USD
// pricing feed, and the receipt notification senders (SendGrid email, Twilio
// SMS and WhatsApp). Notification senders are best-effort by contract:
// missing configuration degrades to a logged warning no-op and never fails
// the transaction flow.
package providers
