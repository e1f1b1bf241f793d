package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// EscrowABI is the subset of the experience escrow contract the backend calls.
const EscrowABI = `[
  {
    "type": "function",
    "name": "createExperience",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "experienceWallet", "type": "address"},
      {"name": "title", "type": "string"},
      {"name": "description", "type": "string"},
      {"name": "location", "type": "string"},
      {"name": "price", "type": "uint256"},
      {"name": "maxParticipants", "type": "uint256"},
      {"name": "scheduledAt", "type": "uint256"},
      {"name": "paymentStructure", "type": "tuple", "components": [
        {"name": "advance", "type": "uint8"},
        {"name": "checkin", "type": "uint8"},
        {"name": "midExperience", "type": "uint8"},
        {"name": "completion", "type": "uint8"}
      ]}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getExperience",
    "stateMutability": "view",
    "inputs": [{"name": "experienceId", "type": "uint256"}],
    "outputs": [
      {"name": "", "type": "tuple", "components": [
        {"name": "id", "type": "uint256"},
        {"name": "creator", "type": "address"},
        {"name": "experienceWallet", "type": "address"},
        {"name": "title", "type": "string"},
        {"name": "description", "type": "string"},
        {"name": "location", "type": "string"},
        {"name": "price", "type": "uint256"},
        {"name": "maxParticipants", "type": "uint256"},
        {"name": "currentParticipants", "type": "uint256"},
        {"name": "status", "type": "uint8"},
        {"name": "createdAt", "type": "uint256"},
        {"name": "scheduledAt", "type": "uint256"},
        {"name": "paymentStructure", "type": "tuple", "components": [
          {"name": "advance", "type": "uint8"},
          {"name": "checkin", "type": "uint8"},
          {"name": "midExperience", "type": "uint8"},
          {"name": "completion", "type": "uint8"}
        ]}
      ]}
    ]
  },
  {
    "type": "function",
    "name": "getNextExperienceId",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "registerForExperience",
    "stateMutability": "payable",
    "inputs": [{"name": "experienceId", "type": "uint256"}],
    "outputs": []
  },
  {
    "type": "function",
    "name": "paused",
    "stateMutability": "view",
    "inputs": [],
    "outputs": [{"name": "", "type": "bool"}]
  },
  {
    "type": "event",
    "name": "ExperienceCreated",
    "anonymous": false,
    "inputs": [
      {"name": "experienceId", "type": "uint256", "indexed": true},
      {"name": "creator", "type": "address", "indexed": true},
      {"name": "experienceWallet", "type": "address", "indexed": false},
      {"name": "title", "type": "string", "indexed": false},
      {"name": "price", "type": "uint256", "indexed": false}
    ]
  }
]`

const (
	methodCreateExperience = "createExperience"
	methodGetExperience    = "getExperience"
	methodNextExperienceID = "getNextExperienceId"
	methodRegister         = "registerForExperience"
	methodPaused           = "paused"
	eventExperienceCreated = "ExperienceCreated"
)

var escrowABI = mustParseABI(EscrowABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid escrow abi: " + err.Error())
	}
	return parsed
}
