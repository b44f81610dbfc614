package models

import "github.com/go-playground/validator/v10"

// shared validator instance for input structs
var validate = validator.New()
