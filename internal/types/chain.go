package types

type MintRequest struct {
	// Recipient defaults to the account itself
	Recipient string `json:"recipient,omitempty"`
	// Amount in base units, decimal; defaults to 10 tokens
	Amount string `json:"amount,omitempty"`
}

type TransactionResponse struct {
	TransactionHash string `json:"transaction_hash"`
	ExplorerURL     string `json:"explorer_url"`
}

type BalanceResponse struct {
	Account     string `json:"account"`
	Token       string `json:"token"`
	Symbol      string `json:"symbol"`
	Raw         string `json:"raw"`
	Decimals    uint8  `json:"decimals"`
	Formatted   string `json:"formatted"`
	ExplorerURL string `json:"explorer_url"`
}

type ReceiptResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Status          string `json:"status"`
	BlockNumber     uint64 `json:"block_number,omitempty"`
	GasUsed         uint64 `json:"gas_used,omitempty"`
	ExplorerURL     string `json:"explorer_url"`
}
