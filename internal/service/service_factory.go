package service

import (
	"lostfound-api/internal/config"
	"lostfound-api/internal/model"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	colleges  model.CollegeRepository
	guests    model.GuestRepository
	cooldown  model.CooldownCache
	sender    model.CodeSender
	hasher    Hasher
	generator CodeGenerator
	recorder  Recorder
	otpConfig config.OTPConfig

	identityService *IdentityService
}

func NewServiceFactory(
	colleges model.CollegeRepository,
	guests model.GuestRepository,
	cooldown model.CooldownCache,
	sender model.CodeSender,
	hasher Hasher,
	generator CodeGenerator,
	recorder Recorder,
	otpConfig config.OTPConfig,
) *ServiceFactory {
	return &ServiceFactory{
		colleges:  colleges,
		guests:    guests,
		cooldown:  cooldown,
		sender:    sender,
		hasher:    hasher,
		generator: generator,
		recorder:  recorder,
		otpConfig: otpConfig,
	}
}

// IdentityService returns the identity service instance (singleton)
func (f *ServiceFactory) IdentityService() *IdentityService {
	if f.identityService == nil {
		f.identityService = NewIdentityService(
			f.colleges,
			f.guests,
			f.cooldown,
			f.sender,
			f.hasher,
			f.generator,
			f.recorder,
			f.otpConfig,
		)
	}
	return f.identityService
}
