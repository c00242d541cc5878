package hook

import "errors"

var errAlreadyInstalled = errors.New("pointer hook already installed")
