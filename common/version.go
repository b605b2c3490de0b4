package common

// PackageName tags metrics and logs emitted by this service.
const PackageName = "kyc-intake"

// Version is set at build time via -ldflags.
var Version = "dev"
