package service

import "errors"

// ErrLoadDataset means the prepared dataset could not be read.
var ErrLoadDataset = errors.New("load prepared dataset")
