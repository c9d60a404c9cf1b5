package services

import (
	"database/sql"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"

	"github.com/capifyhq/capify/models"
)

func GetUserByID(db *sql.DB, id int) (models.User, error) {
	var user models.User
	var firstName, lastName, customerID, subStatus, subPlan sql.NullString
	var updatedAt sql.NullTime
	err := db.QueryRow(
		`SELECT id, email, password_hash, first_name, last_name, stripe_customer_id, subscription_status, subscription_plan, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &firstName, &lastName,
		&customerID, &subStatus, &subPlan, &user.CreatedAt, &updatedAt)
	if err != nil {
		return user, err
	}
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.StripeCustomerID = customerID.String
	user.SubscriptionStatus = subStatus.String
	user.SubscriptionPlan = subPlan.String
	if updatedAt.Valid {
		user.UpdatedAt = &updatedAt.Time
	}
	return user, nil
}

func AddStripeCustomerID(db *sql.DB, user models.User) error {
	_, err := db.Exec(`UPDATE users SET stripe_customer_id = $1 WHERE id = $2`, user.StripeCustomerID, user.ID)
	return err
}

func UpdateSubscriptionStatusAndPlan(db *sql.DB, customerID, status, plan string) error {
	_, err := db.Exec(`UPDATE users SET subscription_status = $1, subscription_plan = $2 WHERE stripe_customer_id = $3`,
		status, plan, customerID)
	return err
}

// GetActiveSubscription returns the customer's latest active subscription,
// or nil when there is none.
func GetActiveSubscription(customerID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("active"),
	}
	params.Filters.AddFilter("limit", "", "1")

	iter := subscription.List(params)

	if iter.Next() {
		return iter.Subscription(), nil
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return nil, nil
}

// HasActiveSubscription gates how many verified containers a user may hold.
// Free accounts get one; a paid plan lifts the cap.
func HasActiveSubscription(user models.User) bool {
	return user.SubscriptionStatus == "active"
}
