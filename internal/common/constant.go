package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// DefaultPurgeBatchSize caps how many parent rows a single purge stage selects
// when the caller does not supply a batch size.
const DefaultPurgeBatchSize = 500

// PurgeLockKey names the lease that serializes purge passes across replicas.
const PurgeLockKey = "decksync:purge"
