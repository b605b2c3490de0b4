/*
Package httpserver implements the HTTP surface of the KYC intake backend.

The server exposes the intake flow consumed by the purchase frontend and the
remote signing portal:

  - POST /api/quote            price quote with the flat purchase fee
  - POST /api/ocr              identity document upload (simulated extraction)
  - POST /api/tx               create a transaction record
  - GET  /api/tx/{token}       record lookup by signing token
  - POST /api/tx/{id}/files    encrypted evidence upload
  - POST /api/sign/{token}     signature upload, moves the record to signed
  - POST /api/tx/{id}/finalize moves signed to sent and dispatches receipts

Record lookups from the signing portal use the unguessable capability token,
never the internal id. Evidence uploads pass through the encrypted artifact
store; plaintext never reaches the storage backend.

The server also carries the operational endpoints: /health, /livez, /readyz,
and the /drain / /undrain pair that flips readiness for load-balancer
rotation. Prometheus metrics are served on a dedicated listener, and CORS is
restricted to the configured frontend origins.

# Server Configuration

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":8090",
		Log:                      logger,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
	server, err := httpserver.New(cfg, handler)
	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
