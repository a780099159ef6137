package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	ChainID uint64 `json:"chain_id"`
	Store   string `json:"store"`
}
