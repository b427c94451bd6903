package model

type Role string

const (
	RoleShopper Role = "USER"
	RoleAdmin   Role = "ADMIN"
)
