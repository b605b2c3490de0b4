// Package interfaces defines the domain model and component contracts shared
// across the KYC intake backend: the transaction record schema, the artifact
// store and transaction repository interfaces, the external provider
// interfaces (screening, pricing, notifications), and the error taxonomy.
//
// Concrete implementations live in their own packages (cryptoutils, storage,
// txstore, providers) and are wired together at startup by cmd/kyc-backend.
package interfaces
