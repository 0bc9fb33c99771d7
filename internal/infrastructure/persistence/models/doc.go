// Package models contains GORM persistence models for the work-item sync
// store. Models convert to and from worksync domain types with ToDomain and
// FromDomain.
package models
