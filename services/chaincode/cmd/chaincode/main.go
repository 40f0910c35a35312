package main

import (
	"os"

	"chainproof/pkg/logging"
	"chainproof/services/chaincode/internal/contract"

	"go.uber.org/zap"
)

func main() {
	logger, err := logging.New("chainproof-chaincode")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	contract.SetLogger(logger)

	cc, err := contract.NewChaincode()
	if err != nil {
		logger.Error("create chaincode", zap.Error(err))
		os.Exit(1)
	}
	if err := cc.Start(); err != nil {
		logger.Error("start chaincode", zap.Error(err))
		os.Exit(1)
	}
}
