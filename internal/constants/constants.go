package constants

import (
	"time"
)

const (
	AppName = "sessionkeys"
	Version = "0.3.0"
)

// Network defaults
const (
	DefaultHost      = "localhost:8080"
	DefaultPort      = "8080"
	DefaultServerURL = "http://localhost:8080"
	MinPort          = 1
	MaxPort          = 65535
	DialTimeout      = 10 * time.Second
	CleanupInterval  = 30 * time.Second
	ShutdownTimeout  = 5 * time.Second
)

// Chain (Abstract testnet)
const (
	ChainID        = 11124
	ChainName      = "Abstract Testnet"
	DefaultRPCURL  = "https://api.testnet.abs.xyz"
	ExplorerURL    = "https://explorer.testnet.abs.xyz"
	TokenSymbol    = "ROOK"
	TokenDecimals  = 18
	ReceiptPolling = 2 * time.Second
)

// Contracts
const (
	PaymasterAddress    = "0x5407B5040dec3D339A9247f3654E59EEccbb6391"
	TokenAddress        = "0x29015fde8cB58126E17e5Ac46bb306a1D7339B59"
	SessionKeyValidator = "0xEcC560d914c6710f0d7920ff8424060b86448DF8"
	MintSignature       = "mint(address,uint256)"
	MintAmount          = "10000000000000000000" // 10 tokens
)

// Session policy defaults
const (
	SessionLifetime        = 24 * time.Hour
	SessionFeeLimit        = "1000000000000000000" // 1 ETH, lifetime
	TransferMaxValuePerUse = "10000000000000000"   // 0.01 ETH
	TransferAllowance      = "100000000000000000"  // 0.1 ETH
	TransferAllowanceEvery = 86400                 // seconds
	StoreKeyPrefix         = "session-"
	ProviderTimeout        = 60 * time.Second
)

// Store backends
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Limits
const (
	MaxBodySize           = 64 * 1024
	MaxProviderBodySize   = 1 << 20
	MaxInflightPerAccount = 1
	MaxAuditLogsPerMinute = 600
	MaxAuthAttempts       = 5
	BlockDuration         = 15 * time.Minute
	MinDiskSpaceRequired  = 50 * 1024 * 1024 // 50MB
	EventBufferSize       = 64
	EventHistory          = 100
	WSBufferSize          = 4096
)

// API endpoints
const (
	EndpointAPI      = "/api"
	EndpointHealth   = "/health"
	EndpointSession  = "/accounts/{account}/session"
	EndpointLogout   = "/accounts/{account}/logout"
	EndpointMint     = "/accounts/{account}/mint"
	EndpointBalance  = "/accounts/{account}/balance"
	EndpointReceipt  = "/transactions/{hash}/receipt"
	EndpointEvents   = "/events"
	ProviderSessions = "/sessions"
	ProviderRevoke   = "/sessions/revoke"
	ProviderSend     = "/sessions/transactions"
)

// Time formats
const (
	TimeFormatShort = "15:04:05"
	TimeFormatLong  = "2006-01-02 15:04:05 MST"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorDim    = "\033[2m"
	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorRed    = "\033[31m"
	ColorPurple = "\033[35m"
)

// Messages
const (
	MsgInvalidJSON       = "Invalid JSON"
	MsgInvalidAccount    = "Invalid account address"
	MsgInvalidTxHash     = "Invalid transaction hash"
	MsgSessionRequired   = "Session Required"
	MsgSessionActive     = "Session already active; revoke it first"
	MsgRequestInFlight   = "A session request for this account is already in flight"
	MsgProviderFailed    = "Wallet provider request failed"
	MsgChainUnavailable  = "Chain RPC not configured"
	MsgPolicyViolation   = "Transaction not allowed by session policy"
	MsgReceiptPending    = "pending"
	MsgUsage             = "Usage: sessionctl <status|create|revoke|logout|mint|balance|wait> <account|tx>"
	MsgExample           = "Example: sessionctl create 0xAbC...123"
	CapabilitiesMint     = "Token Minting"
	CapabilitiesTransfer = "Token Transfers"
)
