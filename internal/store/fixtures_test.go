package store

import "github.com/dailyos/dailyos/internal/entity"

func entityAccount(name string) entity.Account {
	return entity.Account{Name: name, Lifecycle: "active", Health: entity.HealthGreen}
}

func entityPerson(email string) entity.Person {
	return entity.Person{Email: email, Name: "Test Person", Relationship: entity.RelationshipUnknown}
}
