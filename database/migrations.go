package database

import (
	"context"
	"log"
	"strings"

	"facc/store"
	"facc/utils"
)

// Bootstrap adds any top-level entry a fresh installation has but the
// stored document lacks. Existing entries are never touched.
func Bootstrap(ctx context.Context, s store.Store) error {
	log.Println("Checking stored document layout...")

	initial := store.InitialDocument()
	added := 0
	err := s.Update(ctx, func(doc *store.Document) error {
		for _, name := range initial.Names() {
			if !doc.Has(name) {
				doc.SetRaw(name, initial.Raw(name))
				added++
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("Bootstrap failed: %v", err)
		return err
	}

	if added > 0 {
		log.Printf("Added %d missing collections", added)
	}
	return nil
}

// SeedDefaultAdmin creates an administrator if none exists.
func SeedDefaultAdmin(ctx context.Context, s store.Store, email, password string) error {
	doc, err := s.Read(ctx)
	if err != nil {
		return err
	}
	users, err := store.Decode[User](doc, store.Users)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.Role == RoleAdmin || u.Role == RoleSuperuser {
			log.Println("ℹ️ Admin user already exists.")
			return nil
		}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &User{
		Name:         "Administrador",
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         RoleSuperuser,
	}
	if err := store.Append(ctx, s, store.Users, admin); err != nil {
		log.Printf("❌ Failed to create admin: %v", err)
		return err
	}
	log.Printf("✅ Default admin user %s created successfully.", admin.Email)
	return nil
}
